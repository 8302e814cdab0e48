// Определяет политики безопасности для HTML, который выводится на страницах вики. Отрисованный контент
// может прийти от любого участника сообщества, поэтому все, что не входит в список разрешенного, вырезается.
//
// Основные возможности:
//   - Базовая политика bluemonday.UGCPolicy, расширенная тегами MathML и раскрывающихся блоков.
//   - Разрешение data-* атрибутов таблиц, списков задач, выносок и изображений с проверкой значений регулярными выражениями.
//   - Ограничение допустимых стилей (цвет, выравнивание, размеры).
//   - Политика удаления всех тегов для заголовков и кратких описаний.
package policy

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

var StripTagsPolicy *bluemonday.Policy = bluemonday.StrictPolicy()
var UgcPolicy *bluemonday.Policy = bluemonday.UGCPolicy()

// MathTags - теги MathML, которые выводит верстка формул.
var MathTags = []string{
	"math", "mrow", "mi", "mo", "mn", "msup", "mfrac", "msqrt",
	"mtable", "mtr", "mtd", "semantics", "annotation",
}

// ExtraTags - теги сверх базового набора UGC.
var ExtraTags = append([]string{"span", "details", "summary"}, MathTags...)

// blockTags выводятся рендерером без атрибутов.
var blockTags = []string{
	"div", "p", "h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li", "blockquote", "pre", "code", "hr", "br",
	"table", "tbody", "tr", "td", "th", "strong", "em", "u", "s", "sup", "sub", "mark",
}

// ExtraAttrs - атрибуты, разрешенные глобально сверх базового набора UGC.
var ExtraAttrs = []string{
	"class", "style", "aria-hidden", "role", "display", "xmlns",
	"data-align", "data-text-align", "data-type", "data-variant", "data-emoji",
	"data-open", "data-summary", "open",
}

func init() {
	colorRegexp := regexp.MustCompile(`^(#(?:[0-9a-fA-F]{3,4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})|rgb\((\d+),\s*(\d+),\s*(\d+)\)|inherit)$`)
	sizeRegexp := regexp.MustCompile(`^(\d+(px|em|rem|%)?|auto|inherit)$`)
	alignRegexp := regexp.MustCompile(`^(left|center|right|justify)$`)
	imageAlignRegexp := regexp.MustCompile(`^(left|center|right|none)$`)
	floatRegexp := regexp.MustCompile(`^(right|left|none)$`)
	classRegexp := regexp.MustCompile(`^[a-zA-Z0-9_ -]+$`)
	typeRegexp := regexp.MustCompile(`^(math|callout|toggle|taskList|taskItem)$`)
	variantRegexp := regexp.MustCompile(`^[a-z-]{1,32}$`)
	boolRegexp := regexp.MustCompile(`^(true|false)$`)
	displayRegexp := regexp.MustCompile(`^(block|inline)$`)
	roleRegexp := regexp.MustCompile(`^(note|presentation)$`)

	UgcPolicy.AllowElements(ExtraTags...)
	UgcPolicy.AllowElements(blockTags...)
	// Теги формул и <summary> не несут атрибутов, без этого bluemonday их вырезает.
	UgcPolicy.AllowNoAttrs().OnElements(append(blockTags, "details", "summary")...)
	UgcPolicy.AllowNoAttrs().OnElements(MathTags...)

	UgcPolicy.AllowAttrs("class").Matching(classRegexp).Globally()
	UgcPolicy.AllowAttrs("aria-hidden").Matching(boolRegexp).Globally()
	UgcPolicy.AllowAttrs("role").Matching(roleRegexp).Globally()
	UgcPolicy.AllowAttrs("data-type").Matching(typeRegexp).Globally()
	UgcPolicy.AllowAttrs("data-text-align").Matching(alignRegexp).Globally()
	UgcPolicy.AllowAttrs("data-align").Matching(imageAlignRegexp).Globally()
	UgcPolicy.AllowAttrs("data-variant").Matching(variantRegexp).Globally()
	UgcPolicy.AllowAttrs("data-emoji", "data-summary").Globally()
	UgcPolicy.AllowAttrs("data-open").Matching(boolRegexp).Globally()
	UgcPolicy.AllowAttrs("open").Matching(regexp.MustCompile(`^$`)).OnElements("details")

	UgcPolicy.AllowAttrs("display").Matching(displayRegexp).OnElements("math")
	UgcPolicy.AllowAttrs("xmlns").Matching(regexp.MustCompile(`^http://www\.w3\.org/1998/Math/MathML$`)).OnElements("math")

	UgcPolicy.AllowAttrs("data-checked").Matching(boolRegexp).OnElements("li")
	UgcPolicy.AllowAttrs("start").Matching(regexp.MustCompile(`^\d+$`)).OnElements("ol")
	UgcPolicy.AllowAttrs("colspan", "rowspan").Matching(bluemonday.Integer).OnElements("td", "th")
	UgcPolicy.AllowAttrs("data-color").Matching(colorRegexp).OnElements("mark")
	UgcPolicy.AllowAttrs("target").Matching(regexp.MustCompile(`^_blank$`)).OnElements("a")

	UgcPolicy.AllowStyles("color", "background-color").Matching(colorRegexp).Globally()
	UgcPolicy.AllowStyles("text-align").Matching(bluemonday.CellAlign).Globally()
	UgcPolicy.AllowStyles("width").Matching(sizeRegexp).OnElements("img")
	UgcPolicy.AllowStyles("float").Matching(floatRegexp).OnElements("img")
}

// Sanitize очищает HTML по политике вики.
func Sanitize(htmlContent string) string {
	return UgcPolicy.Sanitize(htmlContent)
}

// StripTags удаляет все теги, оставляя экранированный текст.
func StripTags(htmlContent string) string {
	return StripTagsPolicy.Sanitize(htmlContent)
}
