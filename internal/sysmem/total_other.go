//go:build !linux

package sysmem

func fallbackTotal() (uint64, error) {
	return 0, ErrUnknownTotal
}
