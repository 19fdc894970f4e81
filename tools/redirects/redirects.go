// Command redirects patches the kernel image so that selected runtime
// functions jump to kernel replacements.
//
// Kernel functions opt in with a "//go:redirect-from runtime.symbol" comment.
// The "count" command prints the number of redirects found in the kernel
// packages; "populate-table" resolves the source and destination addresses
// in the kernel ELF image and writes them to its .goredirectstbl section.
package main

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"go/ast"
	"io"
	"os"
	"strings"

	"golang.org/x/tools/go/packages"
)

const (
	directive    = "//go:redirect-from"
	tableSection = ".goredirectstbl"
)

type redirect struct {
	src string
	dst string

	srcVMA uint64
	dstVMA uint64
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[redirects] error: %s\n", err.Error())
	os.Exit(1)
}

// loadPackages parses the non-test sources of the packages matching
// patterns.
func loadPackages(patterns ...string) ([]*packages.Package, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax,
	}

	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, err
	}

	if packages.PrintErrors(pkgs) > 0 {
		return nil, errors.New("failed to load kernel packages")
	}

	return pkgs, nil
}

func findRedirects(pkgs []*packages.Package) ([]*redirect, error) {
	var redirects []*redirect

	for _, pkg := range pkgs {
		for _, file := range pkg.Syntax {
			fileRedirects, err := redirectsInFile(pkg.PkgPath, file)
			if err != nil {
				return nil, fmt.Errorf("%s: %s", pkg.Fset.Position(file.Pos()).Filename, err)
			}
			redirects = append(redirects, fileRedirects...)
		}
	}

	return redirects, nil
}

// redirectsInFile collects the redirect directives attached to the function
// declarations of file. Redirect targets are named after their ELF symbol.
func redirectsInFile(pkgPath string, file *ast.File) ([]*redirect, error) {
	var redirects []*redirect

	for _, decl := range file.Decls {
		fnDecl, ok := decl.(*ast.FuncDecl)
		if !ok || fnDecl.Doc == nil || fnDecl.Recv != nil {
			continue
		}

		fqName := pkgPath + "." + fnDecl.Name.Name
		for _, comment := range fnDecl.Doc.List {
			if !strings.HasPrefix(comment.Text, directive) {
				continue
			}

			fields := strings.Fields(comment.Text)
			if len(fields) != 2 || fields[0] != directive {
				return nil, fmt.Errorf("malformed go:redirect-from syntax for %q", fqName)
			}

			redirects = append(redirects, &redirect{
				src: fields[1],
				dst: fqName,
			})
		}
	}

	return redirects, nil
}

func elfRedirectTableOffset(f *elf.File, count int) (uint64, error) {
	redirectsSection := f.Section(tableSection)
	if redirectsSection == nil {
		return 0, fmt.Errorf("missing %s section", tableSection)
	}

	if need := uint64(count) * 16; redirectsSection.Size < need {
		return 0, fmt.Errorf("%s section holds %d bytes; need %d", tableSection, redirectsSection.Size, need)
	}

	return redirectsSection.Offset, nil
}

// resolveSymbols fills in the source and destination addresses of every
// redirect.
func resolveSymbols(redirects []*redirect, symbols []elf.Symbol) error {
	for _, redirect := range redirects {
		for _, symbol := range symbols {
			if symbol.Name == redirect.src {
				redirect.srcVMA = symbol.Value
			}
			if symbol.Name == redirect.dst {
				redirect.dstVMA = symbol.Value
			}
		}

		switch {
		case redirect.srcVMA == 0:
			return fmt.Errorf("could not locate address of %q", redirect.src)
		case redirect.dstVMA == 0:
			return fmt.Errorf("could not locate address of %q", redirect.dst)
		}
	}

	return nil
}

// encodeTable serializes the redirect table as consecutive little-endian
// (src, dst) address pairs.
func encodeTable(redirects []*redirect) []byte {
	var buf bytes.Buffer
	for _, redirect := range redirects {
		binary.Write(&buf, binary.LittleEndian, redirect.srcVMA)
		binary.Write(&buf, binary.LittleEndian, redirect.dstVMA)
	}

	return buf.Bytes()
}

func populateTable(redirects []*redirect, imgFile string) error {
	f, err := elf.Open(imgFile)
	if err != nil {
		return err
	}
	defer f.Close()

	symbols, err := f.Symbols()
	if err != nil {
		return err
	}

	if err = resolveSymbols(redirects, symbols); err != nil {
		return fmt.Errorf("%s: %s", imgFile, err)
	}

	offset, err := elfRedirectTableOffset(f, len(redirects))
	if err != nil {
		return fmt.Errorf("%s: %s", imgFile, err)
	}

	out, err := os.OpenFile(imgFile, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err = out.Seek(int64(offset), io.SeekStart); err != nil {
		return err
	}

	_, err = out.Write(encodeTable(redirects))
	return err
}

func main() {
	pattern := flag.String("pkg", "nucleus/kernel/...", "package pattern to scan for redirect directives")
	flag.Parse()

	if len(flag.Args()) == 0 {
		exit(errors.New("missing command"))
	}

	cmd := flag.Arg(0)
	var imgFile string
	switch cmd {
	case "count":
	case "populate-table":
		if len(flag.Args()) != 2 {
			exit(errors.New("populate-table requires the path to the kernel image as an argument"))
		}
		imgFile = flag.Arg(1)
	default:
		exit(fmt.Errorf("unknown command %q", cmd))
	}

	pkgs, err := loadPackages(*pattern)
	if err != nil {
		exit(err)
	}

	redirects, err := findRedirects(pkgs)
	if err != nil {
		exit(err)
	}

	if cmd == "count" {
		fmt.Printf("%d", len(redirects))
		return
	}

	if err = populateTable(redirects, imgFile); err != nil {
		exit(err)
	}
}
