package editsession

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/comunidadeds/portal/internal/portal/apierrors"
	"github.com/comunidadeds/portal/internal/portal/editor/engine"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

// Типы сообщений клиента.
const (
	MsgExec   = "exec"
	MsgSelect = "select"
	MsgKey    = "key"
	MsgText   = "text"
	MsgSave   = "save"
	MsgUpload = "upload"
)

// Типы сообщений сервера.
const (
	MsgDoc     = "doc"
	MsgPalette = "palette"
	MsgSaved   = "saved"
	MsgError   = "error"
	MsgAck     = "ack"
)

type ClientMessage struct {
	Type string `json:"type"`

	Command string          `json:"command,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`

	Selection *engine.Selection `json:"selection,omitempty"`
	Key       string            `json:"key,omitempty"`
	Text      string            `json:"text,omitempty"`

	// Выгрузка: содержимое файла в base64.
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data,omitempty"`
	Source      string `json:"source,omitempty"`
}

type ServerMessage struct {
	Type string `json:"type"`

	Doc       *tiptap.Node         `json:"doc,omitempty"`
	Version   uint64               `json:"version,omitempty"`
	Selection *engine.Selection    `json:"selection,omitempty"`
	Palette   *engine.PaletteState `json:"palette,omitempty"`
	Uploading int                  `json:"uploading,omitempty"`

	// Handled - ответ на key: клавиша перехвачена палитрой или редактором, дальше ее обрабатывать не нужно.
	Handled bool `json:"handled,omitempty"`

	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// docMessage собирает сообщение из уведомления движка. Состояние берется только из Change:
// движок в этот момент может быть занят следующей командой.
func docMessage(ch engine.Change) ServerMessage {
	return ServerMessage{
		Type:      MsgDoc,
		Doc:       &ch.Doc,
		Version:   ch.Version,
		Selection: &ch.Selection,
		Palette:   &ch.Palette,
		Uploading: ch.Uploading,
	}
}

func paletteMessage(eng *engine.Engine) ServerMessage {
	palette := eng.Palette()
	sel := eng.Selection()
	return ServerMessage{Type: MsgPalette, Palette: &palette, Selection: &sel}
}

// errorMessage переводит ошибку в сообщение для пользователя. Ошибки каталога apierrors
// передаются с кодом и текстом на португальском.
func errorMessage(err error) ServerMessage {
	var de apierrors.DefinedError
	if !errors.As(err, &de) {
		de = apierrors.ErrInternal
		if errors.Is(err, engine.ErrUploadFailed) {
			de = apierrors.ErrUploadFailed
		}
	}
	return ServerMessage{Type: MsgError, Code: de.Code, Message: de.PtErr}
}

// handleMessage применяет сообщение клиента к движку и возвращает ответы. Документ после изменений
// отправляется из OnChange, поэтому здесь возвращаются только подтверждения и ошибки.
func (s *Service) handleMessage(ctx context.Context, eng *engine.Engine, msg ClientMessage) []ServerMessage {
	switch msg.Type {
	case MsgExec:
		cmd, err := engine.DecodeCommand(msg.Command, msg.Args)
		if err != nil {
			return []ServerMessage{errorMessage(apierrors.ErrUnknownCommand.WithFormattedMessage(msg.Command))}
		}
		if !eng.Exec(cmd) {
			return []ServerMessage{errorMessage(apierrors.ErrCommandRejected)}
		}
		return []ServerMessage{paletteMessage(eng)}

	case MsgSelect:
		if msg.Selection == nil || !eng.Select(*msg.Selection) {
			return []ServerMessage{errorMessage(apierrors.ErrInvalidSelection)}
		}
		return []ServerMessage{paletteMessage(eng)}

	case MsgText:
		if msg.Text == "" {
			return nil
		}
		eng.Exec(engine.InsertText{Text: msg.Text})
		return []ServerMessage{paletteMessage(eng)}

	case MsgKey:
		handled := eng.HandleKey(msg.Key)
		if !handled {
			switch strings.ToLower(msg.Key) {
			case "enter":
				handled = eng.Exec(engine.SplitBlock{})
			case "backspace":
				handled = eng.Exec(engine.DeleteText{Count: 1})
			}
		}
		ack := paletteMessage(eng)
		ack.Type = MsgAck
		ack.Handled = handled
		return []ServerMessage{ack}

	case MsgSave:
		// результат приходит через saveFunc (saved) или OnError
		go func() {
			_ = eng.Save(ctx)
		}()
		return nil

	case MsgUpload:
		if m := s.upload(ctx, eng, msg); m != nil {
			return []ServerMessage{*m}
		}
		return nil
	}
	return []ServerMessage{errorMessage(apierrors.ErrInvalidMessage)}
}
