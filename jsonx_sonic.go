//go:build !nojsonsimd

package main

import "github.com/bytedance/sonic"

var fastJSON = sonic.ConfigDefault

func fastJSONMarshal(v any) ([]byte, error) {
	return fastJSON.Marshal(v)
}

func fastJSONUnmarshal(data []byte, v any) error {
	return fastJSON.Unmarshal(data, v)
}

// fastJSONLine encodes v as one newline-terminated stratum frame.
func fastJSONLine(v any) ([]byte, error) {
	b, err := fastJSON.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
