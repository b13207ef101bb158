// Package command defines the command envelope and the pure decision contract
// used on the write path.
//
// Commands express participant or system intent. Deciders turn a command and
// the current session state into either actions to append or rejections that
// explain why nothing happened.
package command
