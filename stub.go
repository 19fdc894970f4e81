package main

import "nucleus/kernel/kmain"

// main makes a dummy call to the actual kernel main entrypoint function. It
// is intentionally defined to prevent the Go compiler from optimizing away the
// real kernel code.
//
// The bootloader jumps to the kernel entry point with the memory map request
// already answered, so Kmain takes no arguments.
func main() {
	kmain.Kmain()
}
