package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"duskrelay/internal/vault"
)

func handleVault(args []string) error {
	if len(args) == 0 {
		return errors.New("vault subcommand required: status|setup|unlock|lock|add-file|export-file|change-pin|reset")
	}
	sub := args[0]
	fs, cfgPath, logLevel, jsonOut := commonFlags("vault " + sub)
	pin := fs.String("pin", "", "vault PIN")
	newPin := fs.String("new-pin", "", "new vault PIN (change-pin only)")
	src := fs.String("src", "", "source file path (add-file only)")
	name := fs.String("name", "", "display name (add-file only)")
	fileType := fs.String("type", "file", "video|audio|image|file (add-file only)")
	deleteOriginal := fs.Bool("delete-original", false, "delete the source file after import")
	encryptedName := fs.String("encrypted-name", "", "ciphertext filename (export-file only)")
	originalName := fs.String("original-name", "", "original filename (export-file only)")
	dest := fs.String("dest", "", "export destination (export-file only)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	core, _, err := newCoreFromFlags(*cfgPath, *logLevel, *jsonOut)
	if err != nil {
		return err
	}
	defer core.Close()

	switch sub {
	case "status":
		st, err := core.VaultStatus()
		if err != nil {
			return err
		}
		fmt.Printf("setup=%v unlocked=%v files=%d size=%s\n", st.Setup, st.Unlocked, st.Count, humanize.Bytes(uint64(st.Bytes)))
		return nil
	case "setup":
		return core.VaultSetup(*pin)
	case "unlock":
		return core.VaultUnlock(*pin)
	case "lock":
		return core.VaultLock()
	case "change-pin":
		return core.VaultChangePIN(*pin, *newPin)
	case "reset":
		return core.VaultReset()
	case "add-file":
		if *src == "" || *name == "" {
			return errors.New("--src and --name required")
		}
		f, err := core.AddVaultFile(*src, *name, parseFileType(*fileType), nil, *deleteOriginal)
		if err != nil {
			return err
		}
		fmt.Printf("added: %s -> %s\n", f.OriginalName, f.EncryptedName)
		return nil
	case "export-file":
		if *encryptedName == "" || *dest == "" {
			return errors.New("--encrypted-name and --dest required")
		}
		path, err := core.ExportVaultFile(*encryptedName, *originalName, *dest)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	default:
		return fmt.Errorf("unknown vault subcommand: %s", sub)
	}
}

func parseFileType(s string) vault.FileType {
	switch s {
	case "video":
		return vault.FileTypeVideo
	case "audio":
		return vault.FileTypeAudio
	case "image":
		return vault.FileTypeImage
	default:
		return vault.FileTypeFile
	}
}
