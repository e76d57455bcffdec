package addr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
)

// SubnetMask is storage-equivalent to [IPv4] but is validated to be a
// contiguous run of one-bits followed by zero-bits (CIDR prefix 0-32).
type SubnetMask struct {
	bits IPv4
}

// ErrNotContiguous is returned when a candidate mask is not a contiguous
// run of 1-bits followed by 0-bits.
const ErrNotContiguous errors.Error = "subnet mask is not contiguous"

// isContiguous reports whether n, read as a 32-bit mask, is all-ones followed
// by all-zeros.  Per spec.md §4.1: let n = mask_u32; require
// ((~n + 1) & (~n)) == 0.
func isContiguous(n uint32) bool {
	inv := ^n
	return (inv+1)&inv == 0
}

// NewSubnetMask validates u as a contiguous mask and wraps it.
func NewSubnetMask(u uint32) (m SubnetMask, err error) {
	if !isContiguous(u) {
		return SubnetMask{}, fmt.Errorf("mask %#08x: %w", u, ErrNotContiguous)
	}

	return SubnetMask{bits: IPv4(u)}, nil
}

// prefixLen returns the CIDR prefix length of a valid mask built from u.
func prefixLen(u uint32) int {
	n := 0
	for u&0x80000000 != 0 {
		n++
		u <<= 1
	}

	return n
}

// CIDR returns a mask of the given prefix length (0-32).
func CIDR(bits int) (m SubnetMask, err error) {
	if bits < 0 || bits > 32 {
		return SubnetMask{}, fmt.Errorf("cidr %d: %w", bits, ErrInvalidFormat)
	}

	var u uint32
	if bits > 0 {
		u = ^uint32(0) << (32 - bits)
	}

	return SubnetMask{bits: IPv4(u)}, nil
}

// MustCIDR is like [CIDR] but panics on error.
func MustCIDR(bits int) (m SubnetMask) {
	m, err := CIDR(bits)
	if err != nil {
		panic(err)
	}

	return m
}

// ParseSubnetMask parses either a dotted-decimal mask ("255.255.255.0") or a
// "/N" CIDR suffix.
func ParseSubnetMask(s string) (m SubnetMask, err error) {
	defer func() { err = errors.Annotate(err, "parsing subnet mask: %w") }()

	if strings.HasPrefix(s, "/") {
		bits, convErr := strconv.Atoi(s[1:])
		if convErr != nil {
			return SubnetMask{}, ErrInvalidFormat
		}

		return CIDR(bits)
	}

	ip, pErr := ParseIPv4(s)
	if pErr != nil {
		return SubnetMask{}, pErr
	}

	return NewSubnetMask(ip.ToU32())
}

// MustParseSubnetMask is like [ParseSubnetMask] but panics on error.
func MustParseSubnetMask(s string) (m SubnetMask) {
	m, err := ParseSubnetMask(s)
	if err != nil {
		panic(err)
	}

	return m
}

// ToU32 returns the big-endian 32-bit representation of m.
func (m SubnetMask) ToU32() uint32 { return m.bits.ToU32() }

// PrefixLen returns the CIDR prefix length of m (0-32).
func (m SubnetMask) PrefixLen() int { return prefixLen(m.bits.ToU32()) }

// String returns the dotted-decimal representation of m.
func (m SubnetMask) String() string { return m.bits.String() }
