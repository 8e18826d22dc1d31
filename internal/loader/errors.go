package loader

import "errors"

var (
	ErrUnimplementedBinaryFormat = errors.New("unimplemented binary file format")
	ErrELFLoadHeaderMissing      = errors.New("unable to find ELF load header")
	ErrPEOptionalHeaderMissing   = errors.New("unable to find PE optional header")
	ErrMachOLoadCommandMissing   = errors.New("unable to find Mach-O load command LC_MAIN")
	ErrMachFatNoX86              = errors.New("unable to find an x86 binary in fat Mach binary")
	ErrEntryOutsideImage         = errors.New("entry point is outside the image")
	ErrMalformedExportTrie       = errors.New("malformed Mach-O export trie")
)
