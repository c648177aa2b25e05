package httpapi

import (
	"io"
	"net/http"
	"strings"

	"google.golang.org/protobuf/proto"
)

// maxRequestBody caps protobuf request bodies. An encoded verify request
// is well under 100 bytes.
const maxRequestBody = 4096

const contentTypeProtobuf = "application/x-protobuf"

// isProtobuf reports whether the request body is protobuf-encoded.
func isProtobuf(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct == contentTypeProtobuf ||
		ct == "application/protobuf" ||
		ct == "application/octet-stream"
}

// wantsProtobuf reports whether the response should be protobuf: either the
// client sent protobuf or it asked for it in Accept.
func wantsProtobuf(r *http.Request) bool {
	if isProtobuf(r) {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, contentTypeProtobuf) ||
		strings.Contains(accept, "application/protobuf")
}

func readProto(r *http.Request, msg proto.Message) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	return proto.Unmarshal(body, msg)
}

func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeProtobuf)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
