// Command genvectors generates the per-vector trap entry stubs of the
// kernel/irq package from its Exceptions table.
//
// For every table entry it emits a stub that pushes a zero error code (unless
// the CPU supplies one), pushes the vector number and jumps to trapCommon.
// It also emits the stub address table used by irq.EntryAddress and a Go
// file declaring the stubs.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"os"
	"path/filepath"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/imports"
)

const (
	tableName  = "Exceptions"
	asmFile    = "stubs_amd64.s"
	goFile     = "stubs_amd64.go"
	header     = "// Code generated by genvectors; DO NOT EDIT.\n"
	slotSizeOf = 8
)

// exception mirrors irq.ExceptionInfo.
type exception struct {
	Vector       uint64
	HasErrorCode bool
	Name         string
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[genvectors] error: %s\n", err.Error())
	os.Exit(1)
}

// loadPackage loads the package at pkgPath with enough information to
// evaluate the constant expressions in its exception table.
func loadPackage(pkgPath string) (*packages.Package, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax |
			packages.NeedTypes | packages.NeedTypesInfo,
	}

	pkgs, err := packages.Load(cfg, pkgPath)
	if err != nil {
		return nil, err
	}

	if len(pkgs) != 1 {
		return nil, fmt.Errorf("expected pattern %q to match a single package; got %d", pkgPath, len(pkgs))
	}

	pkg := pkgs[0]
	if len(pkg.GoFiles) == 0 || len(pkg.Syntax) == 0 {
		return nil, fmt.Errorf("%s: no Go files found", pkgPath)
	}

	// Type errors are tolerated: the generated declarations may be
	// missing or stale while the table itself is still well formed.
	return pkg, nil
}

// findTable locates the exception table declaration among files.
func findTable(files []*ast.File) (*ast.CompositeLit, error) {
	for _, file := range files {
		for _, decl := range file.Decls {
			genDecl, ok := decl.(*ast.GenDecl)
			if !ok || genDecl.Tok != token.VAR {
				continue
			}

			for _, spec := range genDecl.Specs {
				valueSpec := spec.(*ast.ValueSpec)
				for i, name := range valueSpec.Names {
					if name.Name != tableName || i >= len(valueSpec.Values) {
						continue
					}

					lit, ok := valueSpec.Values[i].(*ast.CompositeLit)
					if !ok {
						return nil, fmt.Errorf("%s must be initialized with a composite literal", tableName)
					}
					return lit, nil
				}
			}
		}
	}

	return nil, fmt.Errorf("could not find the %s table", tableName)
}

// parseTable evaluates the entries of the exception table. Entries may use
// positional or keyed fields.
func parseTable(info *types.Info, lit *ast.CompositeLit) ([]exception, error) {
	var (
		exceptions []exception
		fieldNames = []string{"Vector", "HasErrorCode", "Name"}
	)

	for entryIndex, elt := range lit.Elts {
		entryLit, ok := elt.(*ast.CompositeLit)
		if !ok {
			return nil, fmt.Errorf("[entry %d] expected a composite literal", entryIndex)
		}

		values := make(map[string]constant.Value)
		for fieldIndex, field := range entryLit.Elts {
			name, expr := "", field
			if kv, ok := field.(*ast.KeyValueExpr); ok {
				ident, ok := kv.Key.(*ast.Ident)
				if !ok {
					return nil, fmt.Errorf("[entry %d] unsupported key expression", entryIndex)
				}
				name, expr = ident.Name, kv.Value
			} else if fieldIndex < len(fieldNames) {
				name = fieldNames[fieldIndex]
			}

			tv, ok := info.Types[expr]
			if !ok || tv.Value == nil {
				return nil, fmt.Errorf("[entry %d] field %q is not a constant expression", entryIndex, name)
			}
			values[name] = tv.Value
		}

		var (
			ex        exception
			vector    = values["Vector"]
			hasErr    = values["HasErrorCode"]
			nameValue = values["Name"]
		)

		if vector == nil || vector.Kind() != constant.Int {
			return nil, fmt.Errorf("[entry %d] missing or invalid vector number", entryIndex)
		}
		if ex.Vector, ok = constant.Uint64Val(vector); !ok || ex.Vector > 255 {
			return nil, fmt.Errorf("[entry %d] vector number out of range", entryIndex)
		}

		if hasErr != nil {
			if hasErr.Kind() != constant.Bool {
				return nil, fmt.Errorf("[entry %d] HasErrorCode must be a bool", entryIndex)
			}
			ex.HasErrorCode = constant.BoolVal(hasErr)
		}

		if nameValue != nil {
			if nameValue.Kind() != constant.String {
				return nil, fmt.Errorf("[entry %d] Name must be a string", entryIndex)
			}
			ex.Name = constant.StringVal(nameValue)
		}

		if len(exceptions) != 0 && exceptions[len(exceptions)-1].Vector >= ex.Vector {
			return nil, fmt.Errorf("[entry %d] vectors must be listed in ascending order", entryIndex)
		}

		exceptions = append(exceptions, ex)
	}

	if len(exceptions) == 0 {
		return nil, errors.New("exception table is empty")
	}

	return exceptions, nil
}

// numSlots returns the size of the stub address table.
func numSlots(exceptions []exception) uint64 {
	return exceptions[len(exceptions)-1].Vector + 1
}

// renderAsm emits the entry stubs and the stub address table.
func renderAsm(exceptions []exception) []byte {
	var buf bytes.Buffer

	buf.WriteString(header)
	buf.WriteString("\n#include \"textflag.h\"\n")

	for _, ex := range exceptions {
		fmt.Fprintf(&buf, "\n// %d: %s\n", ex.Vector, ex.Name)
		fmt.Fprintf(&buf, "TEXT ·trapEntry%d(SB),NOSPLIT,$0\n", ex.Vector)
		if !ex.HasErrorCode {
			buf.WriteString("\tPUSHQ $0\n")
		}
		fmt.Fprintf(&buf, "\tPUSHQ $%d\n", ex.Vector)
		buf.WriteString("\tJMP ·trapCommon(SB)\n")
	}

	buf.WriteString("\n")
	for _, ex := range exceptions {
		fmt.Fprintf(&buf, "DATA ·stubAddrs+%d(SB)/8, $·trapEntry%d(SB)\n", ex.Vector*slotSizeOf, ex.Vector)
	}
	fmt.Fprintf(&buf, "GLOBL ·stubAddrs(SB), RODATA|NOPTR, $%d\n", numSlots(exceptions)*slotSizeOf)

	return buf.Bytes()
}

// renderGo emits the Go declarations for the entry stubs.
func renderGo(pkgName string, exceptions []exception) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(header)
	fmt.Fprintf(&buf, "\npackage %s\n\n", pkgName)
	buf.WriteString("// numStubSlots is the size of the entry stub address table.\n")
	fmt.Fprintf(&buf, "const numStubSlots = %d\n\n", numSlots(exceptions))
	fmt.Fprintf(&buf, "// Entry stubs implemented in %s.\n", asmFile)
	for _, ex := range exceptions {
		fmt.Fprintf(&buf, "func trapEntry%d()\n", ex.Vector)
	}

	return imports.Process(goFile, buf.Bytes(), nil)
}

type output struct {
	path string
	data []byte
}

func generate(pkgPath string) ([]output, error) {
	pkg, err := loadPackage(pkgPath)
	if err != nil {
		return nil, err
	}

	lit, err := findTable(pkg.Syntax)
	if err != nil {
		return nil, err
	}

	exceptions, err := parseTable(pkg.TypesInfo, lit)
	if err != nil {
		return nil, err
	}

	goSrc, err := renderGo(pkg.Name, exceptions)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(pkg.GoFiles[0])
	return []output{
		{filepath.Join(dir, asmFile), renderAsm(exceptions)},
		{filepath.Join(dir, goFile), goSrc},
	}, nil
}

func main() {
	pkgPath := flag.String("pkg", "nucleus/kernel/irq", "import path of the package holding the exception table")
	check := flag.Bool("check", false, "report whether the generated files are up to date instead of writing them")
	flag.Parse()

	outputs, err := generate(*pkgPath)
	if err != nil {
		exit(err)
	}

	for _, out := range outputs {
		if *check {
			existing, err := os.ReadFile(out.path)
			if err != nil {
				exit(err)
			}
			if !bytes.Equal(existing, out.data) {
				exit(fmt.Errorf("%s is out of date", out.path))
			}
			continue
		}

		if err := os.WriteFile(out.path, out.data, 0644); err != nil {
			exit(err)
		}
	}
}
