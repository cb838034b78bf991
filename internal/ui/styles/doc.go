// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling of the polaris terminal front-end.

All colors are Lip Gloss AdaptiveColor values, so the palette follows the
terminal's light or dark background without detection code.

# Color System (colors.go)

	Purple  - assistant replies, picker selection
	Cyan    - brand, user messages, reference chips
	Emerald - finished uploads
	Amber   - warnings, uploads in flight
	Rose    - errors, failed uploads

# Theme (theme.go)

Theme groups the styles the chat view renders with:

	theme := styles.NewTheme()
	theme.SetSize(width, height)
	header := theme.Header.Render(title)
	badge := theme.NoticeStyle(notice.KindError).Render(msg)
*/
package styles
