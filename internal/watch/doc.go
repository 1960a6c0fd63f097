// Package watch is guildwatch's core: it turns repeated polls of a guild
// roster and a death feed into one notification per real-world event.
//
// Two mechanisms make that work. Roster snapshots are diffed against the
// previous poll, and only strict level increases of members present in both
// polls are reported. Death records are keyed by (killer, victim, date) and
// remembered in a small FIFO cache sized to the feed's overlap window, so a
// record seen on several consecutive polls is announced once.
//
// All state lives in a Service value; nothing here is persisted.
package watch
