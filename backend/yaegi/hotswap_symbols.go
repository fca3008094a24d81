package yaegi

import (
	"reflect"

	"github.com/traefik/yaegi/interp"

	"github.com/chenyanchen/hotswap"
)

// HotswapLibrary is the library name under which HotswapSymbols are
// registered by the hotswap command.
const HotswapLibrary = "hotswap"

// HotswapSymbols exports the state transfer types of package hotswap, so
// interpreted types can implement hotswap.Stateful.
var HotswapSymbols = interp.Exports{
	"github.com/chenyanchen/hotswap/hotswap": map[string]reflect.Value{
		// type definitions
		"Decoder":  reflect.ValueOf((*hotswap.Decoder)(nil)),
		"Encoder":  reflect.ValueOf((*hotswap.Encoder)(nil)),
		"Stateful": reflect.ValueOf((*hotswap.Stateful)(nil)),

		// interface wrapper definitions
		"_Decoder":  reflect.ValueOf((*_hotswap_Decoder)(nil)),
		"_Encoder":  reflect.ValueOf((*_hotswap_Encoder)(nil)),
		"_Stateful": reflect.ValueOf((*_hotswap_Stateful)(nil)),
	},
}

// _hotswap_Decoder is an interface wrapper for Decoder type
type _hotswap_Decoder struct {
	IValue  interface{}
	WDecode func(v any) error
}

func (W _hotswap_Decoder) Decode(v any) error { return W.WDecode(v) }

// _hotswap_Encoder is an interface wrapper for Encoder type
type _hotswap_Encoder struct {
	IValue  interface{}
	WEncode func(v any) error
}

func (W _hotswap_Encoder) Encode(v any) error { return W.WEncode(v) }

// _hotswap_Stateful is an interface wrapper for Stateful type
type _hotswap_Stateful struct {
	IValue interface{}
	WLoad  func(dec hotswap.Decoder) error
	WSave  func(enc hotswap.Encoder) error
}

func (W _hotswap_Stateful) Load(dec hotswap.Decoder) error { return W.WLoad(dec) }
func (W _hotswap_Stateful) Save(enc hotswap.Encoder) error { return W.WSave(enc) }
