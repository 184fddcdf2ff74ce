package progressbar

import (
	"bytes"
	"strings"
	"testing"
)

func TestProgressBar(t *testing.T) {
	var out bytes.Buffer
	p := New(&out, 10, 4)
	p.Increment()
	p.Increment()

	s := p.String()
	if !strings.HasPrefix(s, "|█████     |") {
		t.Errorf("bar: \n\twant(|█████     |...)\n\thave(%v)", s)
	}
	if !strings.Contains(s, "50.00%") {
		t.Errorf("percent: \n\twant(50.00%%)\n\thave(%v)", s)
	}

	p.Set(10)
	if s := p.String(); !strings.Contains(s, "100.00%") {
		t.Errorf("set clipped: \n\twant(100.00%%)\n\thave(%v)", s)
	}

	p.Display()
	if !strings.Contains(out.String(), "100.00%") {
		t.Errorf("display wrote %q", out.String())
	}
}
