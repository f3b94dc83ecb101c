package fdsem

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// on linux a single eventfd serves as read and write end
func openFds() (int, int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}

func notify(fd int) {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		if _, err := unix.Write(fd, buf[:]); err != unix.EINTR {
			return
		}
	}
}

func drain(fd int) {
	var buf [8]byte
	for {
		if _, err := unix.Read(fd, buf[:]); err != unix.EINTR {
			return
		}
	}
}

func closeFds(r, w int) error {
	return unix.Close(r)
}
