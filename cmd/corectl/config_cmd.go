package main

import (
	"encoding/json"
	"errors"
	"fmt"
)

func handleConfig(args []string) error {
	if len(args) == 0 {
		return errors.New("config subcommand required: print")
	}
	fs, cfgPath, _, _ := commonFlags("config " + args[0])
	sub := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	switch sub {
	case "print":
		path := resolveConfigPath(*cfgPath)
		cfg, _, err := loadConfigAndLog(path, "error", false)
		if err != nil {
			return err
		}
		enc, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
		return nil
	default:
		return fmt.Errorf("unknown config subcommand: %s", sub)
	}
}
