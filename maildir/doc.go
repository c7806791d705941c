// Package maildir implements a transactional message-save engine for
// maildir-format mailboxes: staging message bodies under tmp/, then
// atomically publishing a batch of them into new/ or cur/ with a
// contiguous UID range assigned under a cross-process lock.
//
// A caller opens a Mailbox, starts a Transaction against it, calls
// SaveInit/Continue/Finish for each message, and finally calls Commit
// (or Rollback). A Transaction may stage many messages before it is
// committed; none of them become visible to other readers of the
// mailbox until Commit succeeds.
package maildir
