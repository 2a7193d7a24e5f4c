package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
	_ "github.com/wnxd/microld/reloc/amd64"
	_ "github.com/wnxd/microld/reloc/arm"
	_ "github.com/wnxd/microld/reloc/i386"
)

func main() {
	app := cli.NewApp()
	app.Name = "microld"
	app.Usage = "map ELF shared objects into a flat address space and relocate them"
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "debug", Aliases: []string{"d"}, Usage: "debug categories, as LD_DEBUG"},
		&cli.BoolFlag{Name: "dump", Usage: "dump decoded records"},
	}
	app.Commands = []*cli.Command{
		{Name: "relocate",
			Action: relocate,
			Usage:  "map and relocate the objects, first one is searched first",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "now", Usage: "bind jump slots now, as LD_BIND_NOW"},
				&cli.Uint64Flag{Name: "base", Value: 0x10000000, Usage: "load bias of the first object"},
				&cli.BoolFlag{Name: "call", Usage: "call through every lazy slot after relocation"},
			},
			Args: true,
		},
		{Name: "dynamic",
			Action: dynamic,
			Usage:  "print the dynamic section and relocation tables",
			Args:   true,
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("failure %s", err)
	}
}
