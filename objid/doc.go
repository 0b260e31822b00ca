// Package objid encodes and decodes opaque object identifiers.
//
// An ID packs three fields into a single 32-bit value:
//
//	bits 24-31  object type   (Type)
//	bits 14-23  table index   (0..MaxIndex)
//	bits  0-13  serial number (0..SerialMask)
//
// Encoding is pure and never fails. Any bit pattern decodes to some
// (type, index, serial) tuple; whether that tuple names a live object is
// decided by the registry, not here.
//
// Two IDs are equal only when all three fields match, so a handle kept after
// its object was deleted cannot reach the object that later reuses the slot:
// the slot's serial has moved on.
//
// # Sentinels
//
//	Undefined  the zero ID; marks a free slot and "no object"
//	Reserved   marks a slot in the middle of creation or deletion
//
// Neither sentinel can be produced by Compose for a valid Type.
package objid
