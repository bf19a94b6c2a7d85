package notify

import (
	"fmt"
	"strings"
	"time"

	"platinmods-tracker/pkg/tracker"
)

// summaryDurationUnit rounds the reported cycle duration to a readable
// precision.
const summaryDurationUnit = 10 * time.Millisecond

// RenderChange formats a single change event as a Telegram-style Markdown
// message.
func RenderChange(c *tracker.Change) string {
	switch c.Kind {
	case tracker.UserWentOnline:
		return fmt.Sprintf("🚨 **USER ALERT**\n\n👤 **%s** is now **ONLINE**! 🟢\n🔗 [Profile Link](%s)", c.Target.Name, c.Target.URL)
	case tracker.UserWentOffline:
		return fmt.Sprintf("💤 **STATUS UPDATE**\n\n👤 **%s** is now **OFFLINE** 🔴", c.Target.Name)
	case tracker.ThreadAdded:
		return fmt.Sprintf("✨ **NEW THREAD** in __%s__\n\n📝 **%s**\n🔗 [View Thread](%s)", c.Target.Name, c.Thread.Title, c.Thread.URL)
	case tracker.ThreadRemoved:
		return fmt.Sprintf("🗑 **THREAD REMOVED** from __%s__\n\n📝 **%s**", c.Target.Name, c.Thread.Title)
	default:
		return fmt.Sprintf("ℹ️ %s: %s", c.Target.Name, c.Kind)
	}
}

// RenderSummary formats a cycle summary for the manual-check report. Every
// per-target failure is enumerated by name and reason; the report never
// hides incompleteness.
func RenderSummary(summary *tracker.Summary) string {
	var b strings.Builder
	b.WriteString("✅ **MANUAL CHECK COMPLETE**\n")

	var users, forums, failures []*tracker.TargetResult
	for i := range summary.Results {
		res := &summary.Results[i]
		if res.Failed() {
			failures = append(failures, res)
			continue
		}
		switch res.Target.Kind {
		case tracker.KindUser:
			users = append(users, res)
		case tracker.KindForum:
			forums = append(forums, res)
		}
	}

	if len(users) > 0 {
		b.WriteString("\n👤 **User Status**\n")
		for _, res := range users {
			status, emoji := "OFFLINE", "🔴"
			if res.Snapshot != nil && res.Snapshot.Online {
				status, emoji = "ONLINE", "🟢"
			}
			fmt.Fprintf(&b, "• %s: **%s** %s\n", res.Target.Name, status, emoji)
		}
	}

	if len(forums) > 0 {
		b.WriteString("\n📚 **Forum Thread Counts**\n")
		for _, res := range forums {
			count := 0
			if res.Snapshot != nil {
				count = len(res.Snapshot.Threads)
			}
			fmt.Fprintf(&b, "• %s: **%d** threads\n", res.Target.Name, count)
		}
	}

	fmt.Fprintf(&b, "\n🔔 Changes detected: **%d**\n", summary.ChangeCount())

	if len(failures) > 0 {
		b.WriteString("\n⚠️ **Failures**\n")
		for _, res := range failures {
			fmt.Fprintf(&b, "• %s (%s): %v\n", res.Target.Name, res.Stage, res.Err)
		}
	}

	var deliveryFailed int
	for i := range summary.Results {
		if summary.Results[i].DeliveryErr != nil {
			deliveryFailed++
		}
	}
	if deliveryFailed > 0 {
		fmt.Fprintf(&b, "\n📭 Notification delivery failed for **%d** target(s)\n", deliveryFailed)
	}

	fmt.Fprintf(&b, "\n⏱ Completed in %s", summary.FinishedAt.Sub(summary.StartedAt).Round(summaryDurationUnit))

	return b.String()
}
