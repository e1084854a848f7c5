package extract

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type valuer struct{ v driver.Value }

func (v valuer) Value() (driver.Value, error) { return v.v, nil }

func TestFormatValue(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "Lima", "Lima"},
		{"bytes", []byte("12.50"), "12.50"},
		{"bool", true, "true"},
		{"int64", int64(42), "42"},
		{"int32", int32(-7), "-7"},
		{"float64", 3.25, "3.25"},
		{"time", time.Date(2024, 5, 1, 13, 4, 5, 0, time.UTC), "2024-05-01 13:04:05"},
		{"time with micros", time.Date(2024, 5, 1, 13, 4, 5, 120000000, time.UTC), "2024-05-01 13:04:05.12"},
		{"uuid bytes", [16]byte{0x12, 0x3e, 0x45, 0x67, 0xe8, 0x9b, 0x12, 0xd3, 0xa4, 0x56, 0x42, 0x66, 0x14, 0x17, 0x40, 0x00}, "123e4567-e89b-12d3-a456-426614174000"},
		{"valuer", valuer{"99.90"}, "99.90"},
		{"valuer nil", valuer{nil}, ""},
		{"other", []int{1, 2}, "[1 2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := formatValue(tt.in); got != tt.want {
				t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncodeCSV(t *testing.T) {
	t.Parallel()
	body, err := encodeCSV(
		[]string{"id", "nombre", "nota"},
		[][]any{
			{int64(1), "Paracetamol, 500mg", nil},
			{int64(2), `Jarabe "infantil"`, "linea1\nlinea2"},
		},
	)
	if err != nil {
		t.Fatalf("encodeCSV: %v", err)
	}

	want := "id,nombre,nota\n" +
		"1,\"Paracetamol, 500mg\",\n" +
		"2,\"Jarabe \"\"infantil\"\"\",\"linea1\nlinea2\"\n"
	if string(body) != want {
		t.Errorf("unexpected CSV:\n%s\nwant:\n%s", body, want)
	}
}

func TestEncodeCSV_HeaderOnly(t *testing.T) {
	t.Parallel()
	body, err := encodeCSV([]string{"id", "dni"}, nil)
	if err != nil {
		t.Fatalf("encodeCSV: %v", err)
	}
	if string(body) != "id,dni\n" {
		t.Errorf("expected header only, got %q", body)
	}
}

func TestEncodeDocuments(t *testing.T) {
	t.Parallel()
	id := primitive.NewObjectID()
	docs := []bson.M{
		{"_id": id, "cmp": "12345", "nombre": "Dra. Rojas", "colegiaturaValida": true},
		{"_id": "plain-id", "productos": bson.A{"p1", "p2"}},
	}

	body, err := encodeDocuments(docs)
	if err != nil {
		t.Fatalf("encodeDocuments: %v", err)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("output is not a JSON array: %v\n%s", err, body)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(decoded))
	}
	if decoded[0]["_id"] != id.Hex() {
		t.Errorf("expected ObjectID flattened to hex, got %v", decoded[0]["_id"])
	}
	if decoded[0]["colegiaturaValida"] != true {
		t.Errorf("unexpected document %v", decoded[0])
	}
	if decoded[1]["_id"] != "plain-id" {
		t.Errorf("expected string id untouched, got %v", decoded[1]["_id"])
	}
}

func TestEncodeDocuments_Empty(t *testing.T) {
	t.Parallel()
	body, err := encodeDocuments(nil)
	if err != nil {
		t.Fatalf("encodeDocuments: %v", err)
	}
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("expected empty array, got %q", body)
	}
}
