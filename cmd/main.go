package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/dargueta/fatx"
)

func main() {
	app := cli.App{
		Usage: "Inspect and populate Xbox FATX disk images",
		Commands: []*cli.Command{
			{
				Name:      "ndure",
				Usage:     "Mirror a host directory tree into an image's root directory",
				ArgsUsage: "IMAGE HOST_FOLDER [PARTITION_INDEX]",
				Action:    ndure,
			},
			{
				Name:      "browse",
				Usage:     "Open an interactive shell to browse an image",
				ArgsUsage: "IMAGE [PARTITION_INDEX | OFFSET SIZE]",
				Action:    browse,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func mountFromArgs(context *cli.Context, imagePath string, rest []string) (*fatx.Driver, error) {
	driver, err := fatx.Open(imagePath)
	if err != nil {
		return nil, err
	}

	switch len(rest) {
	case 0:
		err = driver.MountDefault()
	case 1:
		var index int
		index, err = strconv.Atoi(rest[0])
		if err == nil {
			err = driver.MountIndex(index)
		}
	case 2:
		var offset, size int64
		offset, err = strconv.ParseInt(rest[0], 10, 64)
		if err == nil {
			size, err = strconv.ParseInt(rest[1], 10, 64)
		}
		if err == nil {
			err = driver.MountRange(offset, size)
		}
	default:
		err = fmt.Errorf("too many mount arguments")
	}

	if err != nil {
		_ = driver.Close()
		return nil, err
	}
	return driver, nil
}

// ndure walks hostFolder and recreates its files and subdirectories under
// the image's current directory, the way the original NDURE tool copies a
// dashboard build onto a console's hard disk.
func ndure(context *cli.Context) error {
	if context.Args().Len() < 2 {
		return fmt.Errorf("usage: ndure IMAGE HOST_FOLDER [PARTITION_INDEX]")
	}

	imagePath := context.Args().Get(0)
	hostFolder := context.Args().Get(1)
	rest := context.Args().Slice()[2:]

	driver, err := mountFromArgs(context, imagePath, rest)
	if err != nil {
		return err
	}
	defer driver.Close()

	if err := mirrorDirectory(driver, hostFolder); err != nil {
		return err
	}
	return driver.Flush()
}

func mirrorDirectory(driver *fatx.Driver, hostDir string) error {
	entries, err := os.ReadDir(hostDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		hostPath := filepath.Join(hostDir, entry.Name())

		if entry.IsDir() {
			if err := driver.MakeDirectory(entry.Name()); err != nil {
				return err
			}
			if err := driver.ChangeDirectory(entry.Name()); err != nil {
				return err
			}
			if err := mirrorDirectory(driver, hostPath); err != nil {
				return err
			}
			if err := driver.ChangeDirectory(".."); err != nil {
				return err
			}
			continue
		}

		if driver.FileExists(entry.Name()) {
			// Already mirrored by an earlier run; WriteFile is new-only so
			// skip instead of failing the whole walk.
			continue
		}

		data, err := os.ReadFile(hostPath)
		if err != nil {
			return err
		}
		if err := driver.WriteFile(entry.Name(), data); err != nil {
			return err
		}
	}
	return nil
}

// browse opens a minimal cd/ls REPL over an image, for manual inspection.
func browse(context *cli.Context) error {
	if context.Args().Len() < 1 {
		return fmt.Errorf("usage: browse IMAGE [PARTITION_INDEX | OFFSET SIZE]")
	}

	imagePath := context.Args().Get(0)
	rest := context.Args().Slice()[1:]

	driver, err := mountFromArgs(context, imagePath, rest)
	if err != nil {
		return err
	}
	defer driver.Close()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("fatx browse -- type 'exit' or 'quit' to leave")

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := scanner.Text()
		command, arg := splitCommand(line)

		switch command {
		case "exit", "quit":
			return nil
		case "ls", "dir":
			for _, entry := range driver.List() {
				marker := ""
				if entry.IsDirectory() {
					marker = "/"
				}
				fmt.Printf("%10d  %s%s\n", entry.FileSize, entry.Name(), marker)
			}
		case "cd":
			if err := driver.ChangeDirectory(arg); err != nil {
				fmt.Fprintf(os.Stderr, "cd: %s\n", err)
			}
		case "":
			// blank line, ignore
		default:
			fmt.Fprintf(os.Stderr, "unrecognized command: %s\n", command)
		}
	}
	return scanner.Err()
}

func splitCommand(line string) (string, string) {
	for i, r := range line {
		if r == ' ' {
			return line[:i], line[i+1:]
		}
	}
	return line, ""
}
