package main

import (
	"debug/elf"
	"log"

	"github.com/ZenLiuCN/fn"
	"github.com/urfave/cli/v2"
	"github.com/wnxd/microld/reloc"
)

var dynTags = []elf.DynTag{
	elf.DT_SONAME, elf.DT_HASH, elf.DT_GNU_HASH, elf.DT_SYMTAB, elf.DT_STRTAB, elf.DT_STRSZ,
	elf.DT_SYMENT, elf.DT_REL, elf.DT_RELSZ, elf.DT_RELA, elf.DT_RELASZ,
	elf.DT_JMPREL, elf.DT_PLTRELSZ, elf.DT_PLTREL, elf.DT_PLTGOT, elf.DT_FLAGS,
}

func dynamic(ctx *cli.Context) error {
	space, objects, err := mapObjects(ctx.Args().Slice(), 0x10000000)
	if err != nil {
		return err
	}
	defer fn.IgnoreClose(space)
	for _, obj := range objects {
		image := obj.image
		begin, size := image.Region()
		log.Printf("%s: mapped [%#x, %#x)", image.Name(), begin, begin+size)
		for _, name := range image.Needed() {
			log.Printf("\tNEEDED %s", name)
		}
		for _, tag := range dynTags {
			if v, ok := image.DynValue(tag); ok {
				log.Printf("\t%-14s %#x", tag, v)
			}
		}
		tables, jump := reloc.Tables(image)
		for _, t := range tables {
			log.Printf("\t%s table @ %#x, %d records", t.Shape, t.Addr, t.Len(image.Class()))
		}
		if jump != nil {
			log.Printf("\tjump table @ %#x, %d records", jump.Addr, jump.Len(image.Class()))
		}
		if ctx.Bool("dump") {
			dumpTables(image)
		}
	}
	return nil
}
