package layout

import "crypto/sha256"

// Discriminator returns the 8-byte Anchor discriminator for namespace:name.
func Discriminator(namespace, name string) []byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	return sum[:8]
}

func withDiscriminator(namespace, name string, l Layout) Layout {
	out := Layout{F("", Const(Bytes(8), Discriminator(namespace, name)))}
	return append(out, LittleEndian(l)...)
}

// Account prefixes l with the account discriminator and makes it little-endian.
func Account(name string, l Layout) Layout { return withDiscriminator("account", name, l) }

// Instruction is the same for instruction data.
func Instruction(name string, l Layout) Layout { return withDiscriminator("global", name, l) }

// Event is the same for emitted events.
func Event(name string, l Layout) Layout { return withDiscriminator("event", name, l) }
