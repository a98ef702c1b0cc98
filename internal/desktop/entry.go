package desktop

import (
	"bytes"
	"fmt"
	"strconv"
	"text/template"

	"gopkg.in/ini.v1"
)

const entryGroup = "Desktop Entry"

// DesktopEntry is the subset of the freedesktop keys the launcher needs.
type DesktopEntry struct {
	Version    string
	Type       string
	Name       string
	Comment    string
	Exec       string
	Icon       string
	Terminal   bool
	Categories string
}

// NewEntry fills the fixed keys for an app directory and launch command.
func NewEntry(appDir, exec string, terminal bool) DesktopEntry {
	return DesktopEntry{
		Version:    "1.0",
		Type:       "Application",
		Name:       "ClockSpeeds",
		Comment:    "CPU Monitoring and Control Application for Linux",
		Exec:       exec,
		Icon:       appDir + "/icon/ClockSpeeds-Icon.png",
		Terminal:   terminal,
		Categories: "Utility;System;",
	}
}

var entryTemplate = template.Must(template.New("entry").Parse(`[Desktop Entry]
Version={{.Version}}
Type={{.Type}}
Name={{.Name}}
Comment={{.Comment}}
Exec={{.Exec}}
Icon={{.Icon}}
Terminal={{.Terminal}}
Categories={{.Categories}}
`))

// Render writes the entry as Key=Value lines. Values are emitted verbatim;
// desktop files have no quoting for these keys.
func (e DesktopEntry) Render() []byte {
	var buf bytes.Buffer
	_ = entryTemplate.Execute(&buf, e)
	return buf.Bytes()
}

// ParseDesktopEntry reads the [Desktop Entry] group of a file.
func ParseDesktopEntry(path string) (DesktopEntry, error) {
	file, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		return DesktopEntry{}, fmt.Errorf("read %s: %w", path, err)
	}
	sec, err := file.GetSection(entryGroup)
	if err != nil {
		return DesktopEntry{}, fmt.Errorf("%s: %w", path, err)
	}
	terminal, err := strconv.ParseBool(sec.Key("Terminal").MustString("false"))
	if err != nil {
		return DesktopEntry{}, fmt.Errorf("%s: invalid Terminal value: %w", path, err)
	}
	return DesktopEntry{
		Version:    sec.Key("Version").String(),
		Type:       sec.Key("Type").String(),
		Name:       sec.Key("Name").String(),
		Comment:    sec.Key("Comment").String(),
		Exec:       sec.Key("Exec").String(),
		Icon:       sec.Key("Icon").String(),
		Terminal:   terminal,
		Categories: sec.Key("Categories").String(),
	}, nil
}
