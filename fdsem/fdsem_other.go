//go:build unix && !linux

package fdsem

import "golang.org/x/sys/unix"

func openFds() (int, int, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return -1, -1, err
	}
	for _, fd := range p {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return -1, -1, err
		}
		unix.CloseOnExec(fd)
	}
	return p[0], p[1], nil
}

func notify(fd int) {
	for {
		if _, err := unix.Write(fd, []byte{1}); err != unix.EINTR {
			return
		}
	}
}

func drain(fd int) {
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil || n < len(buf) {
			return
		}
	}
}

func closeFds(r, w int) error {
	err := unix.Close(r)
	if werr := unix.Close(w); err == nil {
		err = werr
	}
	return err
}
