// Package fieldpath resolves dotted paths such as "Metadata.Status" or
// "Priority" against a notification's structured fields and free-form
// metadata bag.
//
// Resolution uses a typed accessor table instead of reflection. Unknown
// segments resolve to absent rather than erroring, which lets rule
// conditions reference fields that only some events carry.
package fieldpath
