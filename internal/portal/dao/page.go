package dao

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

// ErrSlugTaken возвращается при создании страницы с занятым адресом.
var ErrSlugTaken = errors.New("slug already taken")

// maxSlugSuffix ограничивает перебор суффиксов -2, -3... при генерации адреса.
const maxSlugSuffix = 100

type WikiPage struct {
	ID uuid.UUID `gorm:"column:id;primaryKey;type:uuid" json:"id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Slug    string      `json:"slug" gorm:"uniqueIndex;not null"`
	Title   string      `json:"title" gorm:"not null"`
	Content tiptap.Node `json:"content"`
	Draft   bool        `json:"draft"`
}

func (WikiPage) TableName() string { return "wiki_pages" }

// BeforeCreate выдает странице идентификатор.
func (p *WikiPage) BeforeCreate(tx *gorm.DB) error {
	if p.ID.IsNil() {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		p.ID = id
	}
	return nil
}

// AfterFind нормализует содержимое, которое не прошло через Scan: для NULL колонки gorm Scan не вызывает.
func (p *WikiPage) AfterFind(tx *gorm.DB) error {
	if p.Content.Type != tiptap.TypeDoc {
		p.Content = tiptap.ScanNormalizer.Normalize(p.Content)
	}
	return nil
}

// conformContent приводит значение любого формата к валидному документу по схеме реестра.
func conformContent(raw any) tiptap.Node {
	doc, _ := schema.Default().Conform(tiptap.Normalize(raw))
	return doc
}

// GetPageBySlug возвращает страницу по адресу. Содержимое уже нормализовано (Scan).
// Отсутствующая страница - gorm.ErrRecordNotFound.
func GetPageBySlug(ctx context.Context, db *gorm.DB, pageSlug string) (*WikiPage, error) {
	var page WikiPage
	if err := db.WithContext(ctx).Where("slug = ?", pageSlug).First(&page).Error; err != nil {
		return nil, err
	}
	return &page, nil
}

// ListPages возвращает опубликованные страницы по заголовку, черновики только при drafts.
func ListPages(ctx context.Context, db *gorm.DB, drafts bool) ([]WikiPage, error) {
	var pages []WikiPage
	q := db.WithContext(ctx).Select("id", "slug", "title", "draft", "created_at", "updated_at").Order("title")
	if !drafts {
		q = q.Where("draft = ?", false)
	}
	if err := q.Find(&pages).Error; err != nil {
		return nil, err
	}
	return pages, nil
}

// CreatePage создает страницу. Адрес строится из заголовка (gosimple/slug, португальский), при совпадении
// добавляется числовой суффикс. Явно переданный адрес не меняется: если он занят, возвращается ErrSlugTaken.
func CreatePage(ctx context.Context, db *gorm.DB, title, pageSlug string, content any, draft bool) (*WikiPage, error) {
	page := WikiPage{
		Title:   title,
		Content: conformContent(content),
		Draft:   draft,
	}

	explicit := pageSlug != ""
	base := slug.MakeLang(title, "pt")
	if explicit {
		base = slug.Make(pageSlug)
	}
	if base == "" {
		base = "pagina"
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := 1; i <= maxSlugSuffix; i++ {
			candidate := base
			if i > 1 {
				candidate = base + "-" + strconv.Itoa(i)
			}

			var count int64
			if err := tx.Model(&WikiPage{}).Where("slug = ?", candidate).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				page.Slug = candidate
				return tx.Create(&page).Error
			}
			if explicit {
				return ErrSlugTaken
			}
		}
		return ErrSlugTaken
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = ErrSlugTaken
	}
	if err != nil {
		return nil, fmt.Errorf("create page %q: %w", base, err)
	}
	return &page, nil
}

// SavePageContent сохраняет содержимое страницы. В базу пишется только нормализованный документ,
// приведенный к схеме; промежуточные состояния редактора не сохраняются.
func SavePageContent(ctx context.Context, db *gorm.DB, pageSlug string, content any) (tiptap.Node, error) {
	doc := conformContent(content)

	res := db.WithContext(ctx).Model(&WikiPage{}).Where("slug = ?", pageSlug).Updates(map[string]any{
		"content":    doc,
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return doc, res.Error
	}
	if res.RowsAffected == 0 {
		return doc, gorm.ErrRecordNotFound
	}
	return doc, nil
}

// UpdatePageMeta меняет заголовок и признак черновика.
func UpdatePageMeta(ctx context.Context, db *gorm.DB, pageSlug, title string, draft bool) error {
	res := db.WithContext(ctx).Model(&WikiPage{}).Where("slug = ?", pageSlug).Updates(map[string]any{
		"title": title,
		"draft": draft,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
