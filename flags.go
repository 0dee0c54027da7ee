package bs2fat

const (
	S_IXOTH = 1 << iota
	S_IWOTH = 1 << iota
	S_IROTH = 1 << iota
	S_IXGRP = 1 << iota
	S_IWGRP = 1 << iota
	S_IRGRP = 1 << iota
	S_IXUSR = 1 << iota
	S_IWUSR = 1 << iota
	S_IRUSR = 1 << iota
	S_ISVTX = 1 << iota
	S_ISGID = 1 << iota
	S_ISUID = 1 << iota
	S_IFIFO = 1 << iota
	S_IFCHR = 1 << iota
	S_IFDIR = 1 << iota
	S_IFREG = 1 << iota
)

const S_IFMT = 0xf000

const S_IRWXO = S_IXOTH | S_IWOTH | S_IROTH
const S_IRWXG = S_IXGRP | S_IWGRP | S_IRGRP
const S_IRWXU = S_IXUSR | S_IWUSR | S_IRUSR

// FileTimeFlags selects which of an inode's timestamps an operation touches.
type FileTimeFlags uint8

const (
	// TimeAccess selects the last-accessed time (atime).
	TimeAccess FileTimeFlags = 1 << iota
	// TimeChange selects the metadata-change time (ctime).
	TimeChange
	// TimeModify selects the last-modified time (mtime).
	TimeModify
)

// TimeAll selects every timestamp.
const TimeAll = TimeAccess | TimeChange | TimeModify

// Has returns true if every flag in `other` is also set in `flags`.
func (flags FileTimeFlags) Has(other FileTimeFlags) bool {
	return flags&other == other
}

// With returns a copy of `flags` with every flag in `other` set.
func (flags FileTimeFlags) With(other FileTimeFlags) FileTimeFlags {
	return flags | other
}
