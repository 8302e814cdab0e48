package mathml

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wrap(body, latex, mode string) string {
	return `<math xmlns="http://www.w3.org/1998/Math/MathML" display="` + mode + `"><semantics><mrow>` +
		body + `</mrow><annotation>` + latex + `</annotation></semantics></math>`
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name  string
		latex string
		want  string
	}{
		{"power", "x^2", "<msup><mi>x</mi><mn>2</mn></msup>"},
		{"sum", "a+b=c", "<mi>a</mi><mo>+</mo><mi>b</mi><mo>=</mo><mi>c</mi>"},
		{"fraction", `\frac{a}{b}`, "<mfrac><mrow><mi>a</mi></mrow><mrow><mi>b</mi></mrow></mfrac>"},
		{"fraction short args", `\frac a b`, "<mfrac><mi>a</mi><mi>b</mi></mfrac>"},
		{"sqrt", `\sqrt{x+1}`, "<msqrt><mrow><mi>x</mi><mo>+</mo><mn>1</mn></mrow></msqrt>"},
		{"greek", `\alpha\leq\pi`, "<mi>α</mi><mo>≤</mo><mi>π</mi>"},
		{"decimal", "3.14", "<mn>3.14</mn>"},
		{"function", `\sin x`, "<mi>sin</mi><mi>x</mi>"},
		{"text", `\text{se } x`, "<mi>se </mi><mi>x</mi>"},
		{"spacing ignored", `a\,b`, "<mi>a</mi><mi>b</mi>"},
		{"left right", `\left(x\right)`, "<mo>(</mo><mi>x</mi><mo>)</mo>"},
		{"escaped less", "a<b", "<mi>a</mi><mo>&lt;</mo><mi>b</mi>"},
		{"dollars trimmed", "$x$", "<mi>x</mi>"},
		{
			"matrix",
			`\begin{pmatrix}1&0\\0&1\end{pmatrix}`,
			"<mrow><mo>(</mo><mtable><mtr><mtd><mn>1</mn></mtd><mtd><mn>0</mn></mtd></mtr>" +
				"<mtr><mtd><mn>0</mn></mtd><mtd><mn>1</mn></mtd></mtr></mtable><mo>)</mo></mrow>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.latex, false)
			require.NoError(t, err)
			assert.Contains(t, got, "<mrow>"+tt.want+"</mrow><annotation>")
		})
	}
}

func TestConvertDisplayAndAnnotation(t *testing.T) {
	got, err := Convert("x^2", true)
	require.NoError(t, err)
	assert.Equal(t, wrap("<msup><mi>x</mi><mn>2</mn></msup>", "x^2", "block"), got)

	got, err = Convert("a<b", false)
	require.NoError(t, err)
	assert.Equal(t, wrap("<mi>a</mi><mo>&lt;</mo><mi>b</mi>", "a&lt;b", "inline"), got)
}

func TestConvertErrors(t *testing.T) {
	tests := []string{
		"x_i",
		`\frac{a}`,
		"{x",
		"x}",
		`\unknowncommand`,
		`\sqrt[3]{x}`,
		`\begin{align}x\end{align}`,
		`\begin{matrix}1&2`,
		`a\\b`,
		"a & b",
		"#",
		`x\`,
	}

	for _, latex := range tests {
		t.Run(latex, func(t *testing.T) {
			_, err := Convert(latex, false)
			require.Error(t, err)

			var se *SyntaxError
			assert.True(t, errors.As(err, &se), "expected syntax error, got %v", err)
		})
	}

	_, err := Convert("   ", false)
	assert.ErrorIs(t, err, ErrEmpty)
}
