// Package bbcode renders the bracket-tag markup used in NGA forum posts
// into HTML.
//
// Rules run in a fixed order. Constructs which can nest ([b] and friends,
// list items, lists, collapses and quotes) are rewritten to a fixed point:
// each pass resolves the leftmost-innermost pairs and the pass is repeated
// until the pattern no longer matches. Every pass consumes at least one tag,
// so the loops always terminate.
package bbcode

import (
	"fmt"
	"regexp"
	"strings"
)

type Transformer struct {
	// AttachmentBase replaces the leading "." of relative image paths.
	AttachmentBase string
	// SiteBase is prefixed to user, thread and post links.
	SiteBase string
}

var Default = Transformer{
	AttachmentBase: "https://img.nga.178.com/attachments",
	SiteBase:       "https://nga.178.com",
}

func Transform(src string) string {
	return Default.Transform(src)
}

var simpleTags = []string{"b", "u", "i", "del", "code", "sub", "sup"}

type simpleTagRule struct {
	pattern *regexp.Regexp
	repl    string
}

var simpleTagRules = func() []simpleTagRule {
	out := make([]simpleTagRule, len(simpleTags))
	for i, tag := range simpleTags {
		out[i] = simpleTagRule{
			pattern: regexp.MustCompile(fmt.Sprintf(`(?s)\[%s\](.+?)\[/%s\]`, tag, tag)),
			repl:    fmt.Sprintf("<%s>${1}</%s>", tag, tag),
		}
	}
	return out
}()

var (
	diceRegex     = regexp.MustCompile(`(?s)\[dice\](.+?)\[/dice\]`)
	colorRegex    = regexp.MustCompile(`(?s)\[color=(.+?)\](.+?)\[/color\]`)
	fontRegex     = regexp.MustCompile(`(?s)\[font=(.+?)\](.+?)\[/font\]`)
	sizeRegex     = regexp.MustCompile(`(?s)\[size=(.+?)\](.+?)\[/size\]`)
	alignRegex    = regexp.MustCompile(`(?s)\[align=(.+?)\](.+?)\[/align\]`)
	listRegex     = regexp.MustCompile(`(?s)\[list\](.+?)\[/list\]`)
	imgRegex      = regexp.MustCompile(`(?s)\[img\](.+?)\[/img\]`)
	collapseRegex = regexp.MustCompile(`(?s)\[collapse(?:=(.+?))?\](.+?)\[/collapse\]`)
	quoteRegex    = regexp.MustCompile(`(?s)\[quote\](.+?)\[/quote\]`)
	mentionRegex  = regexp.MustCompile(`(?s)\[@(.+?)\]`)
	uidRegex      = regexp.MustCompile(`(?s)\[uid=(\d+)\](.+?)\[/uid\]`)
	tidRegex      = regexp.MustCompile(`(?s)\[tid=(\d+)\](.+?)\[/tid\]`)
	pidRegex      = regexp.MustCompile(`(?s)\[pid=(\d+),(\d+),(\d+)\](.+?)\[/pid\]`)
	urlRegex      = regexp.MustCompile(`(?s)\[url=(.+?)\](.+?)\[/url\]`)
	headerRegex   = regexp.MustCompile(`(?s)\[h\](.+?)\[/h\]`)
)

const headerStyle = "font-size:1.17em;font-weight:bold;border-bottom:1px solid #aaa;clear:both;margin:1.33em 0 0.2em 0;"

func deepReplace(s string, pattern *regexp.Regexp, repl string) string {
	for pattern.MatchString(s) {
		s = pattern.ReplaceAllString(s, repl)
	}
	return s
}

func (t Transformer) Transform(src string) string {
	s := src

	for {
		changed := false
		for _, rule := range simpleTagRules {
			if rule.pattern.MatchString(s) {
				s = rule.pattern.ReplaceAllString(s, rule.repl)
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	s = diceRegex.ReplaceAllString(s, "<b>ROLL : ${1}</b>")
	s = colorRegex.ReplaceAllString(s, `<span style="color:${1};">${2}</span>`)
	s = fontRegex.ReplaceAllString(s, `<span style="font-family:${1};">${2}</span>`)
	s = sizeRegex.ReplaceAllString(s, `<span style="font-size:${1};">${2}</span>`)
	s = alignRegex.ReplaceAllString(s, `<span style="text-align:${1};">${2}</span>`)

	for {
		next := replaceListItems(s)
		if next == s {
			break
		}
		s = next
	}
	s = deepReplace(s, listRegex, "<ul>${1}</ul>")

	s = imgRegex.ReplaceAllStringFunc(s, func(m string) string {
		src := imgRegex.FindStringSubmatch(m)[1]
		if strings.HasPrefix(src, ".") {
			src = t.AttachmentBase + src[1:]
		}
		return fmt.Sprintf(`<img src="%s">`, src)
	})

	s = deepReplace(s, collapseRegex, "<details><summary>${1}</summary>${2}</details>")

	s = deepReplace(s, quoteRegex, "<blockquote>${1}</blockquote>")
	s = mentionRegex.ReplaceAllString(s, fmt.Sprintf(`<a href="%s/nuke.php?func=ucp&username=${1}">@${1}</a>`, t.SiteBase))
	s = uidRegex.ReplaceAllString(s, fmt.Sprintf(`<a href="%s/nuke.php?func=ucp&uid=${1}">@${2}</a>`, t.SiteBase))
	s = tidRegex.ReplaceAllString(s, fmt.Sprintf(`<a href="%s/read.php?tid=${1}">${2}</a>`, t.SiteBase))
	s = pidRegex.ReplaceAllStringFunc(s, func(m string) string {
		groups := pidRegex.FindStringSubmatch(m)
		pid, tid, page, label := groups[1], groups[2], groups[3], groups[4]
		link := fmt.Sprintf("%s/read.php?tid=%s&page=%s#pid%sAnchor", t.SiteBase, tid, page, pid)
		return fmt.Sprintf(`<a href="%s">%s</a>`, link, label)
	})

	s = urlRegex.ReplaceAllString(s, `<a href="${1}">${2}</a>`)

	s = headerRegex.ReplaceAllString(s, fmt.Sprintf(`<h4 style="%s">${1}</h4>`, headerStyle))

	return s
}

const (
	itemMarker = "[*]"
	listClose  = "[/list]"
)

// replaceListItems wraps every "[*]" item in <li>. An item runs until the
// next "[*]" or "[/list]", which is left in place for the following item or
// the list rule.
func replaceListItems(s string) string {
	var out strings.Builder
	i := 0
	for {
		start := strings.Index(s[i:], itemMarker)
		if start < 0 {
			break
		}
		start += i
		bodyStart := start + len(itemMarker)
		end := nextListTerminator(s, bodyStart+1)
		if end < 0 {
			break
		}
		out.WriteString(s[i:start])
		out.WriteString("<li>")
		out.WriteString(s[bodyStart:end])
		out.WriteString("</li>")
		i = end
	}
	out.WriteString(s[i:])
	return out.String()
}

func nextListTerminator(s string, from int) int {
	if from > len(s) {
		return -1
	}
	item := strings.Index(s[from:], itemMarker)
	closing := strings.Index(s[from:], listClose)
	switch {
	case item < 0 && closing < 0:
		return -1
	case item < 0:
		return from + closing
	case closing < 0:
		return from + item
	case item < closing:
		return from + item
	default:
		return from + closing
	}
}
