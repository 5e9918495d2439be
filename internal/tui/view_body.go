package tui

import "fmt"

func bodyHeader(t topicRow) string {
	date := ""
	if !t.LastDate.IsZero() {
		date = t.LastDate.Local().Format("Jan 2, 2006 15:04")
	}
	return headerStyle.Render(fmt.Sprintf("Topic: %s\nForum: %s\nDate: %s", t.Title(), t.Forum, date))
}

func bodyFooter() string {
	return footerStyle.Render("ctrl+o: open in gmail  esc: back  q: quit")
}

func pickerFooter(mode Mode) string {
	if mode == ModeTopics {
		return footerStyle.Render("enter: select  tab: preview  ctrl+o: open in gmail  esc: clear/quit")
	}
	return footerStyle.Render("enter: select  ctrl+o: open in gmail  esc: clear/quit")
}
