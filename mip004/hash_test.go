package mip004

import "testing"

func TestHashInputKnownVector(t *testing.T) {
	got, err := HashInput("buyer-123", []byte(`{"q":"x"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := "0a0b5d3ec7071539801a8dd3d57affc9e9dc5f530e8d1131af811b10635cc4d7"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestHashInputCanonicalizes(t *testing.T) {
	// Key order and insignificant whitespace must not affect the digest.
	a, err := HashInput("p1", []byte(`{"b":1,"a":2}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	b, err := HashInput("p1", []byte(` { "a" : 2 , "b" : 1 } `))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if a != b {
		t.Errorf("Expected equal digests for equivalent JSON, got %s and %s", a, b)
	}
	want := "4ff54f1494fb3b1e9de7240d4fc95e0456f334ff6d1da346964627b79694f4a8"
	if a != want {
		t.Errorf("Expected %s, got %s", want, a)
	}
}

func TestHashInputRejectsInvalidJSON(t *testing.T) {
	if _, err := HashInput("p1", []byte(`{"unterminated`)); err == nil {
		t.Error("Expected error for invalid JSON input")
	}
}

func TestHashInputDeterministicAndSensitive(t *testing.T) {
	first, err := HashInput("buyer", []byte(`{"job":"translate"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := HashInput("buyer", []byte(`{"job":"translate"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if first != second {
		t.Error("Expected identical digests for identical inputs")
	}

	otherPayload, _ := HashInput("buyer", []byte(`{"job":"summarize"}`))
	if otherPayload == first {
		t.Error("Expected digest to change with payload")
	}
	otherBuyer, _ := HashInput("buyer2", []byte(`{"job":"translate"}`))
	if otherBuyer == first {
		t.Error("Expected digest to change with purchaser id")
	}
}

func TestHashOutputKnownVector(t *testing.T) {
	got := HashOutput("buyer-123", "42")
	want := "0284ace561402c671881b909b389db2558c37135d70b8ea1a15e9b67b75c4820"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestHashOutputBoundaryShift(t *testing.T) {
	// The ";" delimiter prevents "a"+"bc" from colliding with "ab"+"c".
	if HashOutput("a", "bc") == HashOutput("ab", "c") {
		t.Error("Expected different digests when bytes shift across the field boundary")
	}
}

func TestHashOutputNotRecanonicalized(t *testing.T) {
	// Output is opaque bytes; whitespace differences must produce different
	// digests even when the strings are equivalent JSON.
	if HashOutput("p", `{"a":1}`) == HashOutput("p", `{ "a": 1 }`) {
		t.Error("Expected output to be hashed byte-for-byte")
	}
}

func TestDecisionHash(t *testing.T) {
	in, err := HashInput("buyer-123", []byte(`{"q":"x"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	out := HashOutput("buyer-123", "42")
	decision := DecisionHash(in, out)
	if len(decision) != 128 {
		t.Errorf("Expected 128 hex characters, got %d", len(decision))
	}
	if decision != in+out {
		t.Error("Expected decision hash to be the two digests concatenated")
	}
}
