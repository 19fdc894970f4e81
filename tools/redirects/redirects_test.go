package main

import (
	"bytes"
	"debug/elf"
	"go/parser"
	"go/token"
	"strings"
	"testing"
)

func TestRedirectsInFile(t *testing.T) {
	src := `package kfmt

// Panic halts.
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {}

//go:redirect-from runtime.throw
func panicString(msg string) {}

// unrelated has no directive.
func unrelated() {}

type T struct{}

//go:redirect-from runtime.ignored
func (T) method() {}
`

	file, err := parser.ParseFile(token.NewFileSet(), "panic.go", src, parser.ParseComments)
	if err != nil {
		t.Fatal(err)
	}

	redirects, err := redirectsInFile("nucleus/kernel/kfmt", file)
	if err != nil {
		t.Fatal(err)
	}

	exp := []redirect{
		{src: "runtime.gopanic", dst: "nucleus/kernel/kfmt.Panic"},
		{src: "runtime.throw", dst: "nucleus/kernel/kfmt.panicString"},
	}

	if len(redirects) != len(exp) {
		t.Fatalf("expected %d redirects; got %d", len(exp), len(redirects))
	}

	for i, r := range redirects {
		if *r != exp[i] {
			t.Errorf("[redirect %d] expected %+v; got %+v", i, exp[i], *r)
		}
	}
}

func TestRedirectsInFileMalformed(t *testing.T) {
	specs := []string{
		"//go:redirect-from\nfunc f() {}",
		"//go:redirect-from a b\nfunc f() {}",
		"//go:redirect-fromruntime.throw\nfunc f() {}",
	}

	for specIndex, spec := range specs {
		file, err := parser.ParseFile(token.NewFileSet(), "f.go", "package p\n\n"+spec, parser.ParseComments)
		if err != nil {
			t.Fatal(err)
		}

		_, err = redirectsInFile("p", file)
		if err == nil || !strings.Contains(err.Error(), `malformed go:redirect-from syntax for "p.f"`) {
			t.Errorf("[spec %d] expected a malformed directive error; got %v", specIndex, err)
		}
	}
}

func TestFindRedirects(t *testing.T) {
	pkgs, err := loadPackages("nucleus/kernel/kfmt")
	if err != nil {
		t.Fatal(err)
	}

	redirects, err := findRedirects(pkgs)
	if err != nil {
		t.Fatal(err)
	}

	found := make(map[string]string)
	for _, r := range redirects {
		found[r.src] = r.dst
	}

	for src, dst := range map[string]string{
		"runtime.gopanic": "nucleus/kernel/kfmt.Panic",
		"runtime.throw":   "nucleus/kernel/kfmt.panicString",
	} {
		if found[src] != dst {
			t.Errorf("expected %s to be redirected to %s; got %q", src, dst, found[src])
		}
	}
}

func TestResolveSymbols(t *testing.T) {
	symbols := []elf.Symbol{
		{Name: "runtime.gopanic", Value: 0x1000},
		{Name: "runtime.throw", Value: 0x2000},
		{Name: "nucleus/kernel/kfmt.Panic", Value: 0x3000},
	}

	t.Run("success", func(t *testing.T) {
		redirects := []*redirect{{src: "runtime.gopanic", dst: "nucleus/kernel/kfmt.Panic"}}
		if err := resolveSymbols(redirects, symbols); err != nil {
			t.Fatal(err)
		}

		if redirects[0].srcVMA != 0x1000 || redirects[0].dstVMA != 0x3000 {
			t.Fatalf("expected addresses 0x1000 -> 0x3000; got 0x%x -> 0x%x", redirects[0].srcVMA, redirects[0].dstVMA)
		}
	})

	specs := []struct {
		r      redirect
		expErr string
	}{
		{redirect{src: "runtime.missing", dst: "nucleus/kernel/kfmt.Panic"}, `could not locate address of "runtime.missing"`},
		{redirect{src: "runtime.throw", dst: "nucleus/kernel/kfmt.missing"}, `could not locate address of "nucleus/kernel/kfmt.missing"`},
	}

	for specIndex, spec := range specs {
		r := spec.r
		if err := resolveSymbols([]*redirect{&r}, symbols); err == nil || err.Error() != spec.expErr {
			t.Errorf("[spec %d] expected error %q; got %v", specIndex, spec.expErr, err)
		}
	}
}

func TestEncodeTable(t *testing.T) {
	got := encodeTable([]*redirect{
		{srcVMA: 0x1122334455667788, dstVMA: 0x10},
		{srcVMA: 0x20, dstVMA: 0xffffffff80000000},
	})

	exp := []byte{
		0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11,
		0x10, 0, 0, 0, 0, 0, 0, 0,
		0x20, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0x80, 0xff, 0xff, 0xff, 0xff,
	}

	if !bytes.Equal(got, exp) {
		t.Fatalf("expected encoded table:\n% x\ngot:\n% x", exp, got)
	}
}
