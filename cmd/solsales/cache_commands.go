package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/solsales/service/cache"
)

func cacheCommands() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect the local transaction cache",
		Subcommands: []*cli.Command{
			cacheStatsCommand(),
			cacheGetCommand(),
			cacheHasCommand(),
		},
	}
}

func cacheStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show cache entry counts",
		Action: func(c *cli.Context) error {
			store, err := openCache(c)
			if err != nil {
				return err
			}
			signatures, err := store.List()
			if err != nil {
				return err
			}
			fmt.Printf("Cache dir: %s\n", store.Dir())
			fmt.Printf("Entries:   %d\n", len(signatures))
			return nil
		},
	}
}

func cacheGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print a cached raw transaction",
		ArgsUsage: "<signature>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "jq",
				Usage: "gojq filter applied to the raw JSON (e.g. '.instructions[].kind')",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}
			store, err := openCache(c)
			if err != nil {
				return err
			}
			data, err := store.GetRaw(c.Args().First())
			if err != nil {
				return err
			}

			filter := c.String("jq")
			if filter == "" {
				fmt.Println(string(data))
				return nil
			}

			query, err := gojq.Parse(filter)
			if err != nil {
				return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
			}
			code, err := gojq.Compile(query)
			if err != nil {
				return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
			}

			var input any
			if err := json.Unmarshal(data, &input); err != nil {
				return fmt.Errorf("failed to decode cache entry: %w", err)
			}

			iter := code.Run(input)
			encoder := json.NewEncoder(os.Stdout)
			for {
				v, ok := iter.Next()
				if !ok {
					break
				}
				if err, isErr := v.(error); isErr {
					return fmt.Errorf("jq filter failed: %w", err)
				}
				if err := encoder.Encode(v); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func cacheHasCommand() *cli.Command {
	return &cli.Command{
		Name:      "has",
		Usage:     "Check whether a signature is cached (exit code 1 if not)",
		ArgsUsage: "<signature>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}
			store, err := openCache(c)
			if err != nil {
				return err
			}
			if !store.Has(c.Args().First()) {
				return cli.Exit("not cached", 1)
			}
			fmt.Println("cached")
			return nil
		},
	}
}

func openCache(c *cli.Context) (*cache.FileStore, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return cache.NewFileStore(cfg.CacheDir)
}
