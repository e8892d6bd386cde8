//go:build !amd64

package cpu

// HostFeatures reports no paging features outside amd64.
func HostFeatures() Features {
	return Features{}
}
