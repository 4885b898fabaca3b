// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Task scheduling for protocol engines. A Scheduler hands immediate and
// delayed callbacks to an elastic Executor pool, so a task blocked on a slow
// stream never delays another connection's writes or any timer. Engines
// serialize their own work with locks and do not rely on the scheduler for it.
package concurrency
