package tokenizer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// testVocabulary is a tiny byte-level vocabulary:
//
//	h:0 e:1 l:2 o:3 Ġ:4 he:5 ll:6 hell:7 hello:8 <|begin_of_text|>:9 <|eot_id|>:10
func testVocabulary() *Vocabulary {
	return &Vocabulary{
		Values: []string{"h", "e", "l", "o", "Ġ", "he", "ll", "hell", "hello", "<|begin_of_text|>", "<|eot_id|>"},
		Types: []int32{
			TOKEN_TYPE_NORMAL, TOKEN_TYPE_NORMAL, TOKEN_TYPE_NORMAL, TOKEN_TYPE_NORMAL, TOKEN_TYPE_NORMAL,
			TOKEN_TYPE_NORMAL, TOKEN_TYPE_NORMAL, TOKEN_TYPE_NORMAL, TOKEN_TYPE_NORMAL,
			TOKEN_TYPE_CONTROL, TOKEN_TYPE_CONTROL,
		},
		Merges: []string{"h e", "l l", "he ll", "hell o"},
		BOS:    []int32{9},
		EOS:    []int32{10},
		AddBOS: true,
	}
}

func TestBytePairEncodingEncode(t *testing.T) {
	bpe := NewBytePairEncoding(testVocabulary())

	cases := []struct {
		name       string
		input      string
		addSpecial bool
		want       []int32
	}{
		{"whole word", "hello", false, []int32{8}},
		{"partial merge", "helo", false, []int32{5, 2, 3}},
		{"leading space", " o", false, []int32{4, 3}},
		{"merged after space", "hello hello", false, []int32{8, 4, 8}},
		{"special token", "<|eot_id|>helo", false, []int32{10, 5, 2, 3}},
		{"add bos", "<|eot_id|>helo", true, []int32{9, 10, 5, 2, 3}},
		{"empty with bos", "", true, []int32{9}},
		{"empty", "", false, nil},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bpe.Encode(tt.input, tt.addSpecial)
			if err != nil {
				t.Fatal(err)
			}

			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBytePairEncodingDecode(t *testing.T) {
	bpe := NewBytePairEncoding(testVocabulary())
	ids := []int32{9, 5, 2, 3, 4, 3, 10}

	got, err := bpe.Decode(ids, true)
	if err != nil {
		t.Fatal(err)
	}
	if got != "helo o" {
		t.Errorf("expected %q, got %q", "helo o", got)
	}

	got, err = bpe.Decode(ids, false)
	if err != nil {
		t.Fatal(err)
	}
	if want := "<|begin_of_text|>helo o<|eot_id|>"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestBytePairEncodingRoundTrip(t *testing.T) {
	bpe := NewBytePairEncoding(testVocabulary())
	for _, s := range []string{"hello", "hello hello", "he hell o", "oh hello"} {
		ids, err := bpe.Encode(s, false)
		if err != nil {
			t.Fatal(err)
		}

		got, err := bpe.Decode(ids, true)
		if err != nil {
			t.Fatal(err)
		}

		if got != s {
			t.Errorf("round trip of %q produced %q (ids %v)", s, got, ids)
		}
	}
}

func TestSpecialIDs(t *testing.T) {
	bpe := NewBytePairEncoding(testVocabulary())
	if bpe.BOS() != 9 || bpe.EOS() != 10 {
		t.Errorf("unexpected bos/eos %d/%d", bpe.BOS(), bpe.EOS())
	}

	if !bpe.Is(10, SpecialEOS) || bpe.Is(9, SpecialEOS) {
		t.Error("eos classification is wrong")
	}

	empty := NewBytePairEncoding(&Vocabulary{})
	if empty.BOS() != -1 || empty.EOS() != -1 {
		t.Errorf("expected -1 for missing specials, got %d/%d", empty.BOS(), empty.EOS())
	}
}
