//go:build !linux && !darwin

package alerts

const desktopSupported = false

func desktopCommand(a Alert) (string, []string) {
	return "", nil
}
