//go:build !unix

package mapfile

import "os"

func Open(name string) (*File, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return &File{data: data}, nil
}
