//go:build !nojsonsimd

package main

import (
	"reflect"

	"github.com/bytedance/sonic"
)

func init() {
	// Compile the codecs for the per-tick and per-share types up front so the
	// first template poll and first submit do not pay for sonic's JIT.
	for _, t := range []reflect.Type{
		reflect.TypeOf(StratumRequest{}),
		reflect.TypeOf(StratumResponse{}),
		reflect.TypeOf(StratumNotification{}),
		reflect.TypeOf(rpcRequest{}),
		reflect.TypeOf(rpcResponse{}),
		reflect.TypeOf(GetBlockTemplateResult{}),
	} {
		_ = sonic.Pretouch(t)
	}
}
