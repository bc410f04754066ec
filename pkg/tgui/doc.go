// Package tgui holds small helpers for building inline-keyboard layouts and
// trimming user-visible text.
package tgui
