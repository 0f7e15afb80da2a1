//go:build !linux

package team

func availableCPUs() []int { return nil }

func pinThread(int) error { return nil }
