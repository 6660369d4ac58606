package util

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/TylerBrock/colorjson"
)

func Recast(from, to interface{}) error {
	switch v := from.(type) {
	case []byte:
		return json.Unmarshal(v, to)
	default:
		buf, err := json.Marshal(from)
		if err != nil {
			return err
		}

		return json.Unmarshal(buf, to)
	}
}

func PrintJSON(obj interface{}) {
	_ = FprintJSON(os.Stdout, obj)
}

func FprintJSON(w io.Writer, obj interface{}) error {
	var mapData map[string]interface{}
	if err := Recast(obj, &mapData); err != nil {
		return err
	}

	f := colorjson.NewFormatter()
	f.Indent = 4
	s, err := f.Marshal(mapData)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(s))
	return err
}
