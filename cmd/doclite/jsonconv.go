package main

import (
	"go.mongodb.org/mongo-driver/bson"
)

// parseJSONDoc parses a MongoDB extended-JSON document (as produced by
// `mongoexport`-style tooling) into bson.Raw, giving the CLI a
// human-writable surface over the wire format doclite stores internally.
func parseJSONDoc(s string) (bson.Raw, error) {
	var m bson.M
	if err := bson.UnmarshalExtJSON([]byte(s), false, &m); err != nil {
		return nil, err
	}
	data, err := bson.Marshal(m)
	if err != nil {
		return nil, err
	}
	return bson.Raw(data), nil
}

// renderJSONDoc renders doc as relaxed extended JSON for display.
func renderJSONDoc(doc bson.Raw) (string, error) {
	var m bson.M
	if err := bson.Unmarshal(doc, &m); err != nil {
		return "", err
	}
	data, err := bson.MarshalExtJSON(m, false, false)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
