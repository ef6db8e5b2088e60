// Package snapshot captures and restores host-directory workspaces.
//
// Capture walks a directory with fastwalk and produces a sandbox.Snapshot
// whose files are sorted by relative path. Text files are stored as utf8,
// everything else as base64. Caps are explicit:
//
//	opts := snapshot.DefaultOptions() // 1000 files, 1 MiB per file
//	opts.Exclude = append(opts.Exclude, "dist/**")
//	snap, err := snapshot.Capture(ctx, "/path/to/workspace", opts)
//
// A capture that drops files because of a cap sets the "truncated"
// metadata key.
//
// Restore replays a snapshot into a directory. It only adds or overwrites
// files; paths are confined to the root with SecureJoin.
//
// Pack and Unpack turn a snapshot into zstd-compressed JSON for transfer
// to remote sandbox daemons.
package snapshot
