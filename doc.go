// Package shiurhub provides the core of a media-sharing backend: an AWS
// Signature Version 4 request signer for S3-compatible object stores, and a
// catalog service maintaining media metadata plus denormalized per-category
// indexes in a pluggable key-value store.
//
// # Key Components
//
//   - Signer: SigV4 signing in header and presigned-query modes, with a
//     memoized per-day signing-key cache and endpoint-based service/region
//     inference (AWS S3, Cloudflare R2, Backblaze B2)
//   - Service: catalog operations (prepare-upload, get, list, delete) and
//     social operations (views, likes, comments, users, bans) over a Store
//   - Store: minimal key-value interface implemented by the kv subpackages
//     (memory, sqlite, bolt, postgres)
//
// # Consistency Model
//
// A media record and its category index entry are written separately; the
// pair of writes is not atomic. The full record under its id key is the
// source of truth, and Service.Reindex rebuilds every category index from
// the records to repair divergence after a crash or concurrent writer.
//
// See the http package for the REST API, the objectstore package for the
// presigned-URL gateway, and the kv packages for storage backends.
package shiurhub
