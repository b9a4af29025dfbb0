// Package catalog resolves and fetches firmware artifacts.
//
// # Sources
//
// Firmware comes from up to three places:
//
//   - Bundled: .uf2 files shipped next to the tool, named
//     <board>-<version>.uf2 with a detached <name>.uf2.sig alongside.
//     Always available, no network.
//   - Remote: GitHub releases of the vendor firmware repository. Each
//     suitable release carries a <board>.uf2 asset and its .sig; the
//     release tag is the version.
//   - Cache: previously fetched remote artifacts, keyed by board and
//     version. Absence of the cache is never an error.
//
// Listing merges bundled and remote metadata, newest version first. Remote
// failures degrade gracefully to the bundled set rather than failing the
// listing.
//
// # Usage
//
//	cat := catalog.New(
//	    catalog.WithLocalDir("./firmware"),
//	    catalog.WithCacheDir(cacheDir),
//	)
//
//	infos, err := cat.ListVersions(ctx, "vector")
//	if err != nil { ... }
//
//	art, err := cat.Fetch(ctx, infos[0])
//
// Fetch returns the full payload plus its detached signature. Remote
// payloads are checked against the digest declared by the release asset;
// a disagreement is a ChecksumError (transport corruption), which is
// distinct from signature rejection.
//
// # Error Handling
//
//   - ErrArtifactUnavailable: no source has the requested version
//   - ChecksumError: a fetched payload's content hash disagrees with its
//     declared metadata
package catalog
