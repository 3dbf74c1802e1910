// Package imagetypes defines the file classification rules shared by the
// annotation core: the supported image extension allow-list, reserved
// bookkeeping filenames that must never be treated as sidecars, and the
// annotation mode classification used for UI mode detection.
package imagetypes
