// Package gitkv is a path-addressed key/value namespace
// stored as immutable, content-addressed objects.
//
// Every value lives in a blob,
// every directory of values is a tree,
// and every version of the whole namespace is a commit
// naming a root tree and its parent commits.
// Objects are indexed by the sha2-256 hash of their framed bytes,
// called their address, or Addr.
// Objects are never modified.
// Changing a value produces new blobs and trees
// along the changed path only;
// everything else is shared with the previous version.
//
// The layout of objects follows git's,
// with sha2-256 in place of sha1.
// An object is framed as "<kind> <length>\x00<content>".
// A tree's content is a sorted sequence of "<mode> <name>\x00<32-byte address>" entries.
// Consequently the empty tree always has the same address,
// EmptyTreeAddr.
//
// A Store holds objects.
// A RefStore additionally holds refs,
// named pointers to commits that can only be moved with compare-and-set.
// Implementations live in subpackages of store.
// Package tree manipulates trees
// and package repo manipulates commits, refs, and branches.
package gitkv
